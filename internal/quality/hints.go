package quality

import "fmt"

// Violation codes of the default rule set.
const (
	CodePrimaryMissing     = "PRIMARY_MISSING"
	CodeTitleMissing       = "TITLE_MISSING"
	CodeEmptyBody          = "EMPTY_BODY"
	CodeImgAltMissing      = "IMG_ALT_MISSING"
	CodeAssetUnresolved    = "ASSET_UNRESOLVED"
	CodeCDNMissing         = "CDN_MISSING"
	CodeInlineStyleDensity = "INLINE_STYLE_DENSITY"
	CodePlanInvalid        = "PLAN_INVALID"
)

var hints = map[string]string{
	CodePrimaryMissing:     "Emit a complete index.html document at the bundle root.",
	CodeTitleMissing:       "Add a non-empty <title> inside <head> naming the business.",
	CodeEmptyBody:          "Render visible content inside <body>: a hero section with the business name at minimum.",
	CodeImgAltMissing:      "Give every <img> a descriptive alt attribute.",
	CodeAssetUnresolved:    "Every local stylesheet, script and image referenced by index.html must exist in the bundle; fix the path or add the file.",
	CodeCDNMissing:         "Load the required framework from the configured CDN with a <link> or <script> tag.",
	CodeInlineStyleDensity: "Move inline style attributes into the stylesheet and use classes instead.",
	CodePlanInvalid:        `Return plan.json as a JSON object {"title": string, "sections": [{"id": string, "heading": string}]} with at least one section.`,
}

// Hint returns the fix hint for code. Unknown codes get a generic hint that
// still names the code.
func Hint(code string) string {
	if h, ok := hints[code]; ok {
		return h
	}
	return fmt.Sprintf("Resolve quality check %s.", code)
}

// FixInstruction is what a repair call receives for one violation.
type FixInstruction struct {
	Code   string `json:"code"`
	Hint   string `json:"hint"`
	Detail string `json:"detail,omitempty"`
}

// FixInstructions maps violations to instructions in the same order.
func FixInstructions(violations []Violation) []FixInstruction {
	out := make([]FixInstruction, len(violations))
	for i, v := range violations {
		out[i] = FixInstruction{Code: v.Code, Hint: Hint(v.Code), Detail: v.Detail}
	}
	return out
}
