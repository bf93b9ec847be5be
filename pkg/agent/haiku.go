package agent

import (
	"encoding/json"

	"github.com/harun/agentbridge/pkg/coretools"
	"github.com/harun/agentbridge/pkg/imagecatalog"
)

var haikuSchema = mustSchema(map[string]interface{}{
	"type":     "object",
	"required": []string{"japanese", "english"},
	"properties": map[string]interface{}{
		"japanese":    stringArray(1),
		"english":     stringArray(1),
		"image_names": nullable(stringArray(0)),
	},
})

// ParseHaiku validates a generate_haiku payload and corrects its image
// names against catalog. The first corrected image becomes the selection.
func ParseHaiku(raw json.RawMessage, catalog *imagecatalog.Catalog) (*Haiku, error) {
	var h Haiku
	if err := validatePayload(coretools.GenerateHaiku.String(), haikuSchema, raw, &h); err != nil {
		return nil, err
	}

	if catalog == nil {
		catalog = imagecatalog.Default()
	}
	h.ImageNames = catalog.Correct(h.ImageNames)
	h.SelectedImage = ""
	if len(h.ImageNames) > 0 {
		h.SelectedImage = h.ImageNames[0]
	}
	return &h, nil
}
