package parser

import "bytes"

// AnalyzePDF is the lightweight analysis pass that classifies a PDF before
// any full parse. It works on raw bytes only: object-level markers are
// visible outside compressed streams, which is enough to pick a tier.
func AnalyzePDF(data []byte) FileTier {
	if !bytes.HasPrefix(data, pdfMagic) {
		return TierCorrupt
	}
	if !bytes.Contains(data, []byte("%%EOF")) {
		return TierCorrupt
	}

	fonts := bytes.Count(data, []byte("/Font"))
	images := bytes.Count(data, []byte("/Image")) + bytes.Count(data, []byte("/DCTDecode"))

	switch {
	case fonts == 0 && images > 0:
		return TierScannedImage
	case fonts > 0 && images == 0:
		return TierSimpleText
	default:
		return TierTextWithLayout
	}
}

// pdfParserOrder returns the parser names to try for a tier, most likely
// to succeed first.
func pdfParserOrder(tier FileTier) []string {
	switch tier {
	case TierSimpleText:
		return []string{pdfPlainText, pdfLayout, pdfExternal}
	case TierTextWithLayout:
		return []string{pdfLayout, pdfPlainText, pdfExternal}
	case TierScannedImage:
		return []string{pdfExternal, pdfLayout, pdfPlainText}
	default: // corrupt: nothing is likely, try everything anyway
		return []string{pdfPlainText, pdfLayout, pdfExternal}
	}
}
