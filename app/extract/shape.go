package extract

import (
	"strings"

	"github.com/ddrozdov/paperstream/app/pipeline"
)

// sectionMarkers are headings that appear in paper bodies but not in
// abstracts. Their presence distinguishes a full document from an
// abstract that merely happens to be long.
var sectionMarkers = []string{
	"introduction",
	"methodology",
	"related work",
	"experiments",
	"results",
	"discussion",
	"conclusion",
	"references",
}

// DetectShape classifies extracted content as a full document or an
// abstract, with a confidence grade recorded alongside the verdict so
// downstream prompt selection can tell a firm classification from a
// length-only guess.
func DetectShape(content string, fullDocumentThreshold int) (pipeline.ContentShape, pipeline.ShapeConfidence) {
	if len(content) <= fullDocumentThreshold {
		return pipeline.ShapeAbstractOnly, pipeline.ConfidenceHigh
	}

	lower := strings.ToLower(content)
	for _, marker := range sectionMarkers {
		if strings.Contains(lower, marker) {
			return pipeline.ShapeFullDocument, pipeline.ConfidenceHigh
		}
	}

	// Long but without recognizable section structure. Still most likely
	// a full document, but the classification rests on length alone.
	return pipeline.ShapeFullDocument, pipeline.ConfidenceLow
}
