package decode

import (
	"strings"
)

// minRun is the shortest printable run kept by Heuristic.
const minRun = 3

// archiveTokens are class and key names emitted by the archiver itself.
var archiveTokens = map[string]bool{
	"streamtyped":                            true,
	"NSString":                               true,
	"NSMutableString":                        true,
	"NSAttributedString":                     true,
	"NSMutableAttributedString":              true,
	"NSObject":                               true,
	"NSDictionary":                           true,
	"NSMutableDictionary":                    true,
	"NSNumber":                               true,
	"NSValue":                                true,
	"NSArray":                                true,
	"NSData":                                 true,
	"__kIMMessagePartAttributeName":          true,
	"__kIMFileTransferGUIDAttributeName":     true,
	"__kIMBaseWritingDirectionAttributeName": true,
	"__kIMDataDetectedAttributeName":         true,
	"__kIMMentionConfirmedMention":           true,
}

// Heuristic keeps runs of three or more printable ASCII bytes and joins them
// with single spaces. It is an approximation: formatting artifacts may leak
// through and text split by control bytes may be lost.
type Heuristic struct{}

// Decode implements Decoder.
func (Heuristic) Decode(body []byte) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	var runs []string
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minRun {
			run := string(body[start:end])
			if !archiveTokens[run] {
				runs = append(runs, run)
			}
		}
		start = -1
	}
	for i, b := range body {
		if b >= 0x20 && b <= 0x7e {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(body))

	text = strings.TrimSpace(strings.Join(runs, " "))
	return text, text != ""
}
