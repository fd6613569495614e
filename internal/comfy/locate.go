package comfy

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ImageRef identifies one engine-stored image: the filename plus the
// subfolder and storage class the content endpoint needs to find it.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// defaultSaveNodes are the save/output node ids of the production
// templates, in priority order.
var defaultSaveNodes = []string{"34", "28", "21", "19"}

// Outputs is the per-node result payload of a completed workflow. Node
// payloads stay raw: the engine's output shape is not contractually fixed
// across template revisions, so each consumer decodes what it can.
type Outputs map[string]json.RawMessage

// LocateImage finds the first image descriptor in a completion payload.
// Search order, first match wins:
//
//  1. a unified top-level "images" field,
//  2. the known save-node ids, in priority order, accepting both the
//     dict-with-images and bare-list shapes,
//  3. an exhaustive scan of every node exposing an "images" field
//     (node ids sorted, so the scan is deterministic).
func LocateImage(outputs Outputs, saveNodes []string) (ImageRef, error) {
	if len(saveNodes) == 0 {
		saveNodes = defaultSaveNodes
	}

	if raw, ok := outputs["images"]; ok {
		if ref, ok := firstImage(raw); ok {
			return ref, nil
		}
	}

	for _, id := range saveNodes {
		raw, ok := outputs[id]
		if !ok {
			continue
		}
		if ref, ok := imageFromNode(raw); ok {
			return ref, nil
		}
	}

	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		if id != "images" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if ref, ok := imagesField(outputs[id]); ok {
			return ref, nil
		}
	}

	if len(outputs) == 0 {
		return ImageRef{}, fmt.Errorf("%w: workflow produced no outputs", ErrNoArtifact)
	}
	return ImageRef{}, ErrNoArtifact
}

// imageFromNode accepts either shape a save node is known to emit: an
// object with an "images" list, or a bare list whose first element looks
// like an image descriptor.
func imageFromNode(raw json.RawMessage) (ImageRef, bool) {
	if ref, ok := imagesField(raw); ok {
		return ref, true
	}
	return firstImage(raw)
}

func imagesField(raw json.RawMessage) (ImageRef, bool) {
	var node struct {
		Images json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal(raw, &node); err != nil || node.Images == nil {
		return ImageRef{}, false
	}
	return firstImage(node.Images)
}

// firstImage decodes a descriptor list and returns its first entry, if it
// looks like an image (has a filename or storage-class field).
func firstImage(raw json.RawMessage) (ImageRef, bool) {
	var refs []ImageRef
	if err := json.Unmarshal(raw, &refs); err != nil || len(refs) == 0 {
		return ImageRef{}, false
	}
	ref := refs[0]
	if ref.Filename == "" && ref.Type == "" {
		return ImageRef{}, false
	}
	if ref.Type == "" {
		ref.Type = "output"
	}
	return ref, true
}
