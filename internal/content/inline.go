package content

import "strings"

// Inline splits prose into text, bold ("**x**"), italic ("*x*") and rule
// ("---") segments. Unmatched markers stay literal text.
func Inline(s string) []Segment {
	var segs []Segment
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			segs = append(segs, Segment{Type: SegmentText, Text: buf.String()})
			buf.Reset()
		}
	}

	for i := 0; i < len(s); {
		rest := s[i:]

		if strings.HasPrefix(rest, ruleMarker) {
			flush()
			segs = append(segs, Segment{Type: SegmentRule})
			i += len(ruleMarker)
			continue
		}
		if strings.HasPrefix(rest, boldMarker) {
			if n := emphasisEnd(rest[len(boldMarker):], boldMarker); n > 0 {
				flush()
				segs = append(segs, Segment{Type: SegmentBold, Text: rest[2 : 2+n]})
				i += 2*len(boldMarker) + n
				continue
			}
		}
		if rest[0] == emphasisTag {
			if n := emphasisEnd(rest[1:], string(emphasisTag)); n > 0 {
				flush()
				segs = append(segs, Segment{Type: SegmentItalic, Text: rest[1 : 1+n]})
				i += 2 + n
				continue
			}
		}

		buf.WriteByte(s[i])
		i++
	}
	flush()
	return segs
}

// emphasisEnd returns the length of the non-empty, asterisk-free run at the
// start of s when it is followed by closer, or -1.
func emphasisEnd(s, closer string) int {
	n := strings.IndexByte(s, emphasisTag)
	if n <= 0 || !strings.HasPrefix(s[n:], closer) {
		return -1
	}
	return n
}
