package graph

import "log/slog"

// NodeReroute forwards its single input to all consumers under a fixed
// synthetic input name instead of its own slot name.
const NodeReroute = "Reroute"

const rerouteInput = "input"

// widgetInputs maps a node type to input names by widget position. An
// empty name skips that position: the widget there is only meaningful
// when the slot is driven by a link, so a connection always supplies it.
//
// The table is deliberately open-ended. Node vocabularies are extended by
// engine plugins, so an unlisted type is tolerated, not rejected.
var widgetInputs = map[string][]string{
	"CLIPTextEncode":                 {"text"},
	"Int":                            {"Number"},
	"DualCLIPLoader":                 {"clip_name1", "clip_name2", "type", "device"},
	"UNETLoader":                     {"unet_name", "weight_dtype"},
	"VAELoader":                      {"vae_name"},
	"FluxGuidance":                   {"guidance"},
	"BasicScheduler":                 {"scheduler", "steps", "denoise"},
	"KSamplerSelect":                 {"sampler_name"},
	"ModelSamplingFlux":              {"max_shift", "base_shift", "width", "height"},
	"RandomNoise":                    {"noise_seed"},
	"ADE_EmptyLatentImageLarge":      {"width", "height", "batch_size"},
	"Seed (rgthree)":                 {"seed"},
	"pixelerate":                     {"palette", "dither_strength", "", "", "upscale_factor", "shrink_mode", "mode_ratio", "mode_threshold"},
	"RMBG":                           {"model", "sensitivity", "", "mask_blur", "mask_offset", "invert_output", "refine_foreground", "background"},
	"ColorMaskToDepthMask //Inspire": {"spec", "base_value", "dilation", "flatten_method"},
	"pixel_outline":                  {"outline_enabled", "outline_r", "outline_g", "outline_b", "outline_a", "black_threshold", "remove_lonely_enabled", "lonely_n", "scale_factor"},
	"PreviewTextNode":                {"text"},
	"SaveImage":                      {"filename_prefix"},
	"ImpactSwitch":                   {"select", "sel_mode"},
}

// widgetless node types carry no positional values at all; seeing one with
// widgets is not worth a log line.
var widgetless = map[string]bool{
	"PreviewImage":          true,
	"Reroute":               true,
	"JoinImageWithAlpha":    true,
	"VAEDecode":             true,
	"SamplerCustomAdvanced": true,
	"BasicGuider":           true,
}

// mapWidgets translates a node's positional widget values into named
// inputs using the type-keyed table.
func mapWidgets(n Node, inputs map[string]any) {
	names, ok := widgetInputs[n.Type]
	if !ok {
		if !widgetless[n.Type] {
			slog.Debug("graph: no widget mapping for node type", "type", n.Type, "widgets", len(n.WidgetValues))
		}
		return
	}
	for i, name := range names {
		if name == "" || i >= len(n.WidgetValues) {
			continue
		}
		inputs[name] = n.WidgetValues[i]
	}
}
