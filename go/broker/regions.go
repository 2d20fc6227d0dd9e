package broker

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BinaryRegion is a user-named [Start, End) range of load-relative offsets
// for which the simulator should produce a separate report.
type BinaryRegion struct {
	Description string
	Start, End  uint64
}

// BinaryRegions looks regions up by their exact starting offset. The
// emulator reports execution at block granularity, so entry matching is all
// that is needed; region exits are tested against End by the receiver.
type BinaryRegions struct {
	regions map[uint64]*BinaryRegion
}

// LoadRegions parses a manifest with one "start end description" triple per
// line. Addresses are load-relative and accepted in any base strconv
// understands; '#' starts a comment.
func LoadRegions(path string) (*BinaryRegions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open region manifest '%s'", path)
	}
	defer f.Close()

	br := &BinaryRegions{regions: make(map[uint64]*BinaryRegion)}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.Errorf("%s:%d: expected 'start end description'", path, line)
		}
		start, err := strconv.ParseUint(fields[0], 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: bad start address", path, line)
		}
		end, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: bad end address", path, line)
		}
		if end <= start {
			return nil, errors.Errorf("%s:%d: empty region [%#x, %#x)", path, line, start, end)
		}
		if _, ok := br.regions[start]; ok {
			return nil, errors.Errorf("%s:%d: duplicate region starting at %#x", path, line, start)
		}
		br.regions[start] = &BinaryRegion{
			Description: strings.Join(fields[2:], " "),
			Start:       start,
			End:         end,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read region manifest '%s'", path)
	}
	return br, nil
}

func (b *BinaryRegions) Len() int {
	if b == nil {
		return 0
	}
	return len(b.regions)
}

// Lookup returns the region starting exactly at offset, if any.
func (b *BinaryRegions) Lookup(offset uint64) *BinaryRegion {
	if b == nil {
		return nil
	}
	return b.regions[offset]
}
