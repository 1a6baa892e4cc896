// Package imagegen generates AI food photography for recipes and splices it
// into the recipe markdown. Image generation is strictly best-effort: every
// failure collapses to "no image" and never fails the recipe request.
package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/smartchef/smartchef/internal/recipemd"
)

// Generator produces a single image for a prompt. The returned string is
// either a hosted URL or a base64 data URL depending on the provider; ""
// means no image was produced.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	dishPromptTmpl = "Professional food photography of %s, beautifully plated on an elegant dish, " +
		"restaurant quality presentation, garnished perfectly, warm lighting, appetizing, no text or watermarks"
	ingredientsPromptTmpl = "Professional flat-lay food photography of fresh ingredients for %s: %s, " +
		"neatly arranged on wooden cutting board, bright clean lighting, appetizing, no text or watermarks"

	maxPromptIngredients = 8
)

// Augmenter appends generated images to recipe markdown.
type Augmenter struct {
	gen Generator
}

// NewAugmenter creates an Augmenter backed by the given Generator.
func NewAugmenter(gen Generator) *Augmenter {
	return &Augmenter{gen: gen}
}

// AppendImages derives the dish name and ingredient list from the recipe,
// generates a plated-dish shot and an ingredients flat-lay concurrently, and
// splices whichever succeeded into a "Recipe Images" section. The section
// goes immediately before the "### Ingredients" heading when present,
// otherwise at the end. On total failure the input is returned unchanged.
func (a *Augmenter) AppendImages(ctx context.Context, recipe string) string {
	if a == nil || a.gen == nil {
		return recipe
	}

	dishName := recipemd.DishName(recipe)
	ingredients := recipemd.IngredientNames(recipe)
	if len(ingredients) > maxPromptIngredients {
		ingredients = ingredients[:maxPromptIngredients]
	}

	slog.Info("generating recipe images", "dish", dishName, "ingredients", len(ingredients))

	var dishImage, ingredientsImage string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dishImage = a.generate(gctx, fmt.Sprintf(dishPromptTmpl, dishName))
		return nil
	})
	g.Go(func() error {
		prompt := fmt.Sprintf(ingredientsPromptTmpl, dishName, strings.Join(ingredients, ", "))
		ingredientsImage = a.generate(gctx, prompt)
		return nil
	})
	_ = g.Wait()

	if dishImage == "" && ingredientsImage == "" {
		slog.Info("no images generated, returning recipe unchanged", "dish", dishName)
		return recipe
	}

	var section strings.Builder
	section.WriteString("\n\n## Recipe Images\n\n")
	if ingredientsImage != "" {
		fmt.Fprintf(&section, "### Ingredients\n![Ingredients for %s](%s)\n\n", dishName, ingredientsImage)
	}
	if dishImage != "" {
		fmt.Fprintf(&section, "### Final Dish\n![%s](%s)\n\n", dishName, dishImage)
	}
	section.WriteString("*AI-generated images*\n")

	if at := strings.Index(recipe, "### Ingredients"); at > 0 {
		return recipe[:at] + section.String() + recipe[at:]
	}
	return recipe + section.String()
}

func (a *Augmenter) generate(ctx context.Context, prompt string) string {
	img, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("image generation failed", "error", err)
		return ""
	}
	return img
}
