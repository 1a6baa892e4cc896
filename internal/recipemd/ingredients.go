package recipemd

import (
	"regexp"
	"strings"
)

var (
	dishHeaderRe   = regexp.MustCompile(`(?i)##\s*(.+?)\s*[-–]\s*(Budget|Luxury)`)
	dishFallbackRe = regexp.MustCompile(`##\s*(.+)`)

	pricedRowRe = regexp.MustCompile(`\|\s*([^|$]+?)\s*\|\s*\$[\d.]+\s*\|`)
	unitPrefix  = regexp.MustCompile(`(?i)^\d+[\d/\s]*(lb|oz|cup|tbsp|tsp|g|kg|ml|l|bunch|clove|can|pkg)s?\s*`)
)

// DishName extracts the dish name for image-prompt building. A level-2
// heading with a trailing "- Budget/Luxury" qualifier wins; any level-2
// heading is the fallback; "dish" is the default.
func DishName(markdown string) string {
	if m := dishHeaderRe.FindStringSubmatch(markdown); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := dishFallbackRe.FindStringSubmatch(markdown); m != nil {
		return strings.TrimSpace(m[1])
	}
	return "dish"
}

// IngredientNames pulls bare ingredient names from priced table rows,
// stripping leading quantity and unit tokens. Used only to build
// image-generation prompts; the full table parse lives in Parse.
func IngredientNames(markdown string) []string {
	var names []string
	for _, m := range pricedRowRe.FindAllStringSubmatch(markdown, -1) {
		item := strings.TrimSpace(m[1])
		if item == "" || strings.Contains(item, "---") || strings.EqualFold(item, "item") {
			continue
		}
		name := strings.TrimSpace(unitPrefix.ReplaceAllString(item, ""))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
