package main

import (
	"github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cmd"

	_ "github.com/DHouckImmunant/LLVM-MCA-Daemon/go/cmd/serve"
)

func main() { cmd.Main() }
