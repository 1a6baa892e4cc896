// Package recipemd recovers structured recipe data from the semi-structured
// markdown produced by the recipe agents. The upstream service enforces no
// schema, so every extractor is a best-effort pattern cascade with explicit
// defaults; none of them ever fail.
package recipemd

import (
	"regexp"
	"strconv"
	"strings"
)

// Tier is the recipe cost class.
type Tier string

const (
	TierBudget Tier = "budget"
	TierLuxury Tier = "luxury"
)

// Ingredient is one parsed row of the ingredients table.
type Ingredient struct {
	Quantity string  `json:"quantity"`
	Unit     string  `json:"unit"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
}

// Step is one numbered method step.
type Step struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Recipe is a structured view computed fresh from markdown. The markdown
// stays the source of truth; this view is lossy by nature.
type Recipe struct {
	Name             string       `json:"name"`
	Tier             Tier         `json:"tier"`
	IngredientsImage string       `json:"ingredients_image,omitempty"`
	DishImage        string       `json:"dish_image,omitempty"`
	PrepTime         int          `json:"prep_time"`
	CookTime         int          `json:"cook_time"`
	TotalTime        int          `json:"total_time"`
	Servings         int          `json:"servings"`
	TotalCost        float64      `json:"total_cost"`
	Ingredients      []Ingredient `json:"ingredients"`
	Steps            []Step       `json:"steps"`
	Equipment        []string     `json:"equipment"`
	Tips             []string     `json:"tips"`
	FinishingGarnish []string     `json:"finishing_garnish"`
	Tags             []string     `json:"tags"`
	WinePairing      string       `json:"wine_pairing,omitempty"`
	Difficulty       int          `json:"difficulty"`
}

var (
	nameRe     = regexp.MustCompile(`(?m)^#{1,2}\s*(.+?)(?:\s*[-–]\s*(?:Budget|Luxury)\s*Version)?$`)
	leadHashRe = regexp.MustCompile(`^#\s*`)

	imageRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

	prepRe     = regexp.MustCompile(`(?i)\*?\*?Prep(?:\s*Time)?\*?\*?[:\s]*(\d+)\s*min`)
	cookRe     = regexp.MustCompile(`(?i)\*?\*?Cook(?:\s*Time)?\*?\*?[:\s]*(\d+)\s*min`)
	totalRe    = regexp.MustCompile(`(?i)\*?\*?Total(?:\s*Time)?\*?\*?[:\s]*(\d+)\s*min`)
	servingsRe = regexp.MustCompile(`(?i)\*?\*?Servings?\*?\*?[:\s]*(\d+)`)
	costRe     = regexp.MustCompile(`(?i)(?:Estimated\s*)?(?:Total\s*)?Cost[:\s]*\$?([\d.]+)`)

	wineRe = regexp.MustCompile(`(?is)\*?\*?Wine\s*Pairing\*?\*?[:\s]+(.+?)(?:\n\n|\n###|\n\*\*|$)`)

	ingredientSectionRe = regexp.MustCompile(`(?is)###?\s*(?:Premium|Budget)?\s*Ingredients.*?(?:###|Equipment|Method|Instructions|$)`)
	tableRowRe          = regexp.MustCompile(`\|([^|]+)\|([^|]+)\|`)
	qtyRe               = regexp.MustCompile(`^([\d./½¼¾⅓⅔]+)\s*(\w+)?\s+(.+)`)
	parenRe             = regexp.MustCompile(`\([^)]*\)`)
	priceRe             = regexp.MustCompile(`\$?([\d.]+)`)

	methodSectionRe = regexp.MustCompile(`(?is)###?\s*Method.*?(?:###?\s*Finishing|###?\s*Notes|###?\s*Tips|###?\s*Recipe Images|$)`)
	stepMarkerRe    = regexp.MustCompile(`\*\*(\d+)\.\s*([^*]+?)\*\*:?`)
	stepInlineRe    = regexp.MustCompile(`(\d+)\.\s*\*\*([^*]+)\*\*:?\s*([^\n]*)`)
	stepPlainRe     = regexp.MustCompile(`(\d+)\.\s+([^\n]+)`)
	boldRe          = regexp.MustCompile(`\*+`)
	spaceRe         = regexp.MustCompile(`\s+`)

	equipmentSectionRe = regexp.MustCompile(`(?is)###?\s*Equipment.*?(?:###|$)`)
	finishingSectionRe = regexp.MustCompile(`(?is)###?\s*Finishing\s*(?:&|and)?\s*Garnish.*?(?:###|$)`)
	notesSectionRe     = regexp.MustCompile(`(?is)###?\s*(?:Notes|Tips).*?(?:###|Recipe Images|$)`)
	bulletRe           = regexp.MustCompile(`[-*]\s+([^\n]+)`)

	cuisineRe = regexp.MustCompile(`(?i)(Italian|Mexican|Asian|Indian|French|American|Mediterranean|Japanese|Chinese|Thai)`)
)

// Parse builds the full structured view of a recipe document. It is total:
// any input, including the empty string, yields a populated Recipe with
// documented defaults in place of missing fields.
func Parse(markdown string, tier Tier) Recipe {
	r := Recipe{
		Name:       "Generated Recipe",
		Tier:       tier,
		Difficulty: 2,
	}
	if tier == TierLuxury {
		r.Difficulty = 4
	}

	if m := nameRe.FindStringSubmatch(markdown); m != nil {
		r.Name = leadHashRe.ReplaceAllString(strings.TrimSpace(m[1]), "")
	}

	r.IngredientsImage, r.DishImage = classifyImages(markdown)

	r.PrepTime = matchInt(prepRe, markdown, 15)
	r.CookTime = matchInt(cookRe, markdown, 30)
	r.TotalTime = matchInt(totalRe, markdown, r.PrepTime+r.CookTime)
	r.Servings = matchInt(servingsRe, markdown, 4)
	if m := costRe.FindStringSubmatch(markdown); m != nil {
		r.TotalCost, _ = strconv.ParseFloat(m[1], 64)
	}

	if m := wineRe.FindStringSubmatch(markdown); m != nil {
		w := strings.TrimSpace(m[1])
		w = strings.TrimPrefix(w, "**")
		w = strings.TrimSuffix(w, "**")
		w = strings.ReplaceAll(w, "\n", " ")
		r.WinePairing = strings.TrimSpace(w)
	}

	r.Ingredients = parseIngredientTable(markdown)
	r.Steps = parseSteps(markdown)
	r.Equipment = parseEquipment(markdown)
	r.FinishingGarnish = parseFinishing(markdown)
	r.Tips = parseTips(markdown)
	r.Tags = parseTags(markdown, tier)

	return r
}

// classifyImages scans every markdown image and assigns it to the
// ingredients or dish slot by alt-text keywords. When no alt text gives a
// signal, the last image becomes the dish and, if two or more exist, the
// first becomes the ingredients shot. That positional tie-break is the only
// signal available when upstream omits descriptive alt text.
func classifyImages(markdown string) (ingredientsImage, dishImage string) {
	matches := imageRe.FindAllStringSubmatch(markdown, -1)
	for _, m := range matches {
		alt := strings.ToLower(m[1])
		url := m[2]
		if strings.Contains(alt, "final") || strings.Contains(alt, "dish") ||
			strings.Contains(alt, "plated") || strings.Contains(alt, "finished") ||
			!strings.Contains(alt, "ingredient") {
			if dishImage == "" {
				dishImage = url
			}
		}
		if strings.Contains(alt, "ingredient") {
			ingredientsImage = url
		}
	}
	if dishImage == "" && len(matches) > 0 {
		dishImage = matches[len(matches)-1][2]
		if len(matches) >= 2 {
			ingredientsImage = matches[0][2]
		}
	}
	return ingredientsImage, dishImage
}

func matchInt(re *regexp.Regexp, s string, def int) int {
	if m := re.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return def
}

func isTableNoise(row string) bool {
	return strings.Contains(row, "Item") || strings.Contains(row, "---") ||
		strings.Contains(row, "Est.") || strings.Contains(row, "Price")
}

func parseIngredientTable(markdown string) []Ingredient {
	section := ingredientSectionRe.FindString(markdown)
	if section == "" {
		return nil
	}

	var out []Ingredient
	for _, row := range tableRowRe.FindAllString(section, -1) {
		if isTableNoise(row) {
			continue
		}
		var cells []string
		for _, c := range strings.Split(row, "|") {
			if t := strings.TrimSpace(c); t != "" {
				cells = append(cells, t)
			}
		}
		if len(cells) < 2 {
			continue
		}
		item, priceText := cells[0], cells[1]

		price := 0.0
		if m := priceRe.FindStringSubmatch(priceText); m != nil {
			price, _ = strconv.ParseFloat(m[1], 64)
		}

		if m := qtyRe.FindStringSubmatch(item); m != nil {
			out = append(out, Ingredient{
				Quantity: m[1],
				Unit:     m[2],
				Name:     strings.TrimSpace(parenRe.ReplaceAllString(m[3], "")),
				Price:    price,
			})
		} else if !strings.Contains(item, "---") {
			out = append(out, Ingredient{Quantity: "1", Name: item, Price: price})
		}
	}
	return out
}

// parseSteps applies three step-format variants in order and stops at the
// first that yields any steps. Each variant exists for a format the upstream
// agents have actually produced; do not collapse them.
func parseSteps(markdown string) []Step {
	method := methodSectionRe.FindString(markdown)
	if method == "" {
		return nil
	}

	// Variant 1: "**N. Title:** description" spanning to the next marker.
	var steps []Step
	idx := stepMarkerRe.FindAllStringSubmatchIndex(method, -1)
	for i, loc := range idx {
		num, _ := strconv.Atoi(method[loc[2]:loc[3]])
		title := strings.TrimSpace(method[loc[4]:loc[5]])
		title = strings.TrimSuffix(title, ":")
		title = strings.TrimSpace(boldRe.ReplaceAllString(title, ""))

		end := len(method)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		desc := method[loc[1]:end]
		if h := strings.Index(desc, "###"); h >= 0 {
			desc = desc[:h]
		}
		desc = strings.TrimSpace(spaceRe.ReplaceAllString(desc, " "))

		if title != "" {
			steps = append(steps, Step{Number: num, Title: title, Description: desc})
		}
	}
	if len(steps) > 0 {
		return steps
	}

	// Variant 2: "N. **Title:** description" on a single line.
	for _, m := range stepInlineRe.FindAllStringSubmatch(method, -1) {
		num, _ := strconv.Atoi(m[1])
		title := strings.TrimSuffix(strings.TrimSpace(m[2]), ":")
		if title != "" {
			steps = append(steps, Step{Number: num, Title: title, Description: strings.TrimSpace(m[3])})
		}
	}
	if len(steps) > 0 {
		return steps
	}

	// Variant 3: a bare numbered list. A colon within the first 50 characters
	// splits title from description.
	for _, m := range stepPlainRe.FindAllStringSubmatch(method, -1) {
		num, _ := strconv.Atoi(m[1])
		text := strings.TrimSpace(boldRe.ReplaceAllString(m[2], ""))
		if text == "" || strings.Contains(text, "|") || strings.Contains(text, "---") {
			continue
		}
		if colon := strings.Index(text, ":"); colon > 0 && colon < 50 {
			steps = append(steps, Step{
				Number:      num,
				Title:       strings.TrimSpace(text[:colon]),
				Description: strings.TrimSpace(text[colon+1:]),
			})
		} else {
			steps = append(steps, Step{Number: num, Title: text})
		}
	}
	return steps
}

func bulletItems(section string) []string {
	var items []string
	for _, m := range bulletRe.FindAllStringSubmatch(section, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			items = append(items, t)
		}
	}
	return items
}

func parseEquipment(markdown string) []string {
	section := equipmentSectionRe.FindString(markdown)
	if section == "" {
		return nil
	}
	equipment := bulletItems(section)
	if len(equipment) == 0 {
		for _, line := range strings.Split(section, "\n") {
			t := strings.TrimSpace(line)
			if t == "" || strings.HasPrefix(t, "#") || strings.Contains(t, "Equipment") {
				continue
			}
			t = strings.TrimSpace(strings.TrimLeft(t, "-* "))
			if len(t) > 2 {
				equipment = append(equipment, t)
			}
		}
	}
	return equipment
}

func parseFinishing(markdown string) []string {
	section := finishingSectionRe.FindString(markdown)
	if section == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(section, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "-") {
			continue
		}
		if len(t) > 10 {
			out = append(out, t)
		}
	}
	for _, item := range bulletItems(section) {
		if !contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

func parseTips(markdown string) []string {
	section := notesSectionRe.FindString(markdown)
	if section == "" {
		return nil
	}
	tips := bulletItems(section)
	for _, line := range strings.Split(section, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "-") || strings.HasPrefix(t, "*") {
			continue
		}
		if len(t) > 20 && !contains(tips, t) {
			tips = append(tips, t)
		}
	}
	return tips
}

// parseTags always includes the tier label, plus up to two cuisines found in
// the document from a fixed vocabulary.
func parseTags(markdown string, tier Tier) []string {
	tags := []string{"Budget"}
	if tier == TierLuxury {
		tags = []string{"Luxury"}
	}
	seen := map[string]bool{}
	for _, m := range cuisineRe.FindAllStringSubmatch(markdown, -1) {
		c := strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
		if seen[c] {
			continue
		}
		seen[c] = true
		tags = append(tags, c)
		if len(seen) == 2 {
			break
		}
	}
	return tags
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
