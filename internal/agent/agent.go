// Package agent holds the chef orchestrator: it sends the conversation to a
// language model, inspects the full reply for recipe routing tags, and either
// returns the reply as-is or drives the recipe backend to produce a priced
// recipe document.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/smartchef/smartchef/internal/ai"
	"github.com/smartchef/smartchef/internal/recipemd"
)

const systemPrompt = `You are SmartChef, an AI-powered culinary assistant.

Your capabilities:
- Answer cooking-related questions
- Provide cooking tips and techniques
- Discuss ingredients, nutrition, and dietary restrictions
- Help with meal planning
- Answer general questions on any topic

When a user wants a specific recipe (like "butter chicken", "pasta carbonara", etc.), respond with EXACTLY this format:
[RECIPE: dish_name]

If user mentions "luxury" or "premium" or "fancy" or "expensive", use:
[RECIPE_LUXURY: dish_name]

If user mentions a specific location/city, include it:
[RECIPE: dish_name | location]
[RECIPE_LUXURY: dish_name | location]

Examples:
- User: "make me butter chicken" -> [RECIPE: butter chicken]
- User: "luxury pasta carbonara" -> [RECIPE_LUXURY: pasta carbonara]
- User: "butter chicken for Texas" -> [RECIPE: butter chicken | Texas]
- User: "expensive sushi" -> [RECIPE_LUXURY: sushi]

For general questions, cooking tips, or suggestions - just answer normally without the tag.

Be friendly and enthusiastic about cooking!`

const defaultLocation = "San Francisco"

// Event is one unit of agent output. Status events narrate progress, text
// events carry content for the transcript, and done marks the end of a turn.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

const (
	EventStatus = "status"
	EventText   = "text"
	EventDone   = "done"
)

// RecipeRequest is a parsed routing tag from a model reply.
type RecipeRequest struct {
	Dish     string
	Tier     recipemd.Tier
	Location string
}

// RecipeBackend is the slice of the project service the agent drives.
type RecipeBackend interface {
	CheckHealth(ctx context.Context) bool
	CreateRecipeProject(ctx context.Context, dish string, tier recipemd.Tier, location string) (string, error)
	GetProjectResult(ctx context.Context, projectID string, timeout time.Duration) (string, error)
}

// ImageAugmenter appends generated images to a recipe document.
type ImageAugmenter interface {
	AppendImages(ctx context.Context, recipe string) string
}

// RecipeCache stores finished recipes keyed by tier and dish.
type RecipeCache interface {
	Get(ctx context.Context, tier recipemd.Tier, dish string) (string, bool)
	Set(ctx context.Context, tier recipemd.Tier, dish, recipe string)
}

// ChefAgent orchestrates a single chat turn end to end.
type ChefAgent struct {
	llm     ai.Provider
	recipes RecipeBackend
	images  ImageAugmenter
	cache   RecipeCache

	// ResultTimeout bounds recipe polling; zero means the backend default.
	ResultTimeout time.Duration
}

// New builds a ChefAgent. images and cache may be nil to disable image
// augmentation and recipe caching respectively.
func New(llm ai.Provider, recipes RecipeBackend, images ImageAugmenter, cache RecipeCache) *ChefAgent {
	return &ChefAgent{llm: llm, recipes: recipes, images: images, cache: cache}
}

// errServiceUnavailable marks a failed backend health check so Chat can map
// it to the fixed unavailability message instead of the generic one.
var errServiceUnavailable = errors.New("recipe service unavailable")

// The luxury tag is matched first so "[RECIPE_LUXURY: x]" never falls
// through to the budget branch via its "[RECIPE:" prefix.
var (
	luxuryTagRe = regexp.MustCompile(`(?i)\[RECIPE_LUXURY:\s*(.+?)(?:\s*\|\s*(.+?))?\s*\]`)
	budgetTagRe = regexp.MustCompile(`(?i)\[RECIPE:\s*(.+?)(?:\s*\|\s*(.+?))?\s*\]`)

	leadingBracketH2Re = regexp.MustCompile(`^\[##\s*`)
	leadingBracketH1Re = regexp.MustCompile(`^\[#\s*`)
	leadingBracketRe   = regexp.MustCompile(`^\[\s*`)
)

func parseRecipeRequest(text string) *RecipeRequest {
	if m := luxuryTagRe.FindStringSubmatch(text); m != nil {
		return newRecipeRequest(m[1], recipemd.TierLuxury, m[2])
	}
	if m := budgetTagRe.FindStringSubmatch(text); m != nil {
		return newRecipeRequest(m[1], recipemd.TierBudget, m[2])
	}
	return nil
}

func newRecipeRequest(dish string, tier recipemd.Tier, location string) *RecipeRequest {
	location = strings.TrimSpace(location)
	if location == "" {
		location = defaultLocation
	}
	return &RecipeRequest{Dish: strings.TrimSpace(dish), Tier: tier, Location: location}
}

// cleanRecipeOutput strips the stray leading bracket the upstream format
// sometimes leaves before the first heading.
func cleanRecipeOutput(text string) string {
	text = leadingBracketH2Re.ReplaceAllString(text, "## ")
	text = leadingBracketH1Re.ReplaceAllString(text, "# ")
	text = leadingBracketRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// composePrompt folds the last turns of history into a single prompt the
// model sees as one user message.
func composePrompt(message string, history []ai.Message) string {
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	if len(history) == 0 {
		return message
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		label := "Assistant"
		if m.Role == "user" {
			label = "User"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	b.WriteString("\n\nUser: ")
	b.WriteString(message)
	return b.String()
}

func (a *ChefAgent) invokeModel(ctx context.Context, message string, history []ai.Message) (string, error) {
	return a.llm.Chat(ctx, []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: composePrompt(message, history)},
	})
}

// Chat answers one turn and blocks until the full reply is ready. Failures
// are mapped to user-facing text so a chat surface never sees a raw error.
func (a *ChefAgent) Chat(ctx context.Context, message string, history []ai.Message) string {
	reply, err := a.invokeModel(ctx, message, history)
	if err != nil {
		slog.Error("model invocation failed", "error", err)
		return "I'm having trouble processing that. Could you try rephrasing?"
	}

	req := parseRecipeRequest(reply)
	if req == nil {
		if reply == "" {
			return "I apologize, I couldn't generate a response."
		}
		return reply
	}

	recipe, err := a.generateRecipe(ctx, req)
	if err != nil {
		slog.Error("recipe generation failed", "dish", req.Dish, "error", err)
		if errors.Is(err, errServiceUnavailable) {
			return "I'm sorry, the recipe service is currently unavailable."
		}
		return "I encountered an error generating your recipe. Please try again."
	}
	if a.images != nil {
		recipe = a.images.AppendImages(ctx, recipe)
	}
	return cleanRecipeOutput(recipe)
}

func (a *ChefAgent) generateRecipe(ctx context.Context, req *RecipeRequest) (string, error) {
	if cached, ok := a.cachedRecipe(ctx, req); ok {
		return cached, nil
	}
	if !a.recipes.CheckHealth(ctx) {
		return "", errServiceUnavailable
	}

	projectID, err := a.recipes.CreateRecipeProject(ctx, req.Dish, req.Tier, req.Location)
	if err != nil {
		return "", err
	}
	recipe, err := a.recipes.GetProjectResult(ctx, projectID, a.ResultTimeout)
	if err != nil {
		return "", err
	}

	if a.cache != nil {
		a.cache.Set(ctx, req.Tier, req.Dish, recipe)
	}
	return recipe, nil
}

func (a *ChefAgent) cachedRecipe(ctx context.Context, req *RecipeRequest) (string, bool) {
	if a.cache == nil {
		return "", false
	}
	recipe, ok := a.cache.Get(ctx, req.Tier, req.Dish)
	if ok {
		slog.Info("recipe cache hit", "tier", req.Tier, "dish", req.Dish)
	}
	return recipe, ok
}

// StreamChat answers one turn as a sequence of events on the returned
// channel. The model reply is collected in full before anything is emitted
// because the routing tag can appear anywhere in it. Every stream ends with
// exactly one done event, after which the channel is closed.
func (a *ChefAgent) StreamChat(ctx context.Context, message string, history []ai.Message, includeImages bool) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		a.streamTurn(ctx, events, message, history, includeImages)
		events <- Event{Type: EventDone}
	}()
	return events
}

func (a *ChefAgent) streamTurn(ctx context.Context, events chan<- Event, message string, history []ai.Message, includeImages bool) {
	events <- Event{Type: EventStatus, Content: "Thinking..."}

	reply, err := a.invokeModel(ctx, message, history)
	if err != nil {
		slog.Error("model invocation failed", "error", err)
		events <- Event{Type: EventText, Content: "I'm having trouble processing that."}
		return
	}

	req := parseRecipeRequest(reply)
	if req == nil {
		events <- Event{Type: EventText, Content: reply}
		return
	}

	events <- Event{Type: EventStatus, Content: fmt.Sprintf("🍳 Creating %s recipe for %s...", req.Tier, req.Dish)}
	events <- Event{Type: EventStatus, Content: "🔍 Searching for ingredient prices..."}

	recipe, ok := a.cachedRecipe(ctx, req)
	if !ok {
		if !a.recipes.CheckHealth(ctx) {
			events <- Event{Type: EventText, Content: "Recipe service unavailable."}
			return
		}

		projectID, err := a.recipes.CreateRecipeProject(ctx, req.Dish, req.Tier, req.Location)
		if err != nil {
			slog.Error("project creation failed", "dish", req.Dish, "error", err)
			events <- Event{Type: EventText, Content: "Error generating recipe. Please try again."}
			return
		}

		crafting := "👨‍🍳 Creating budget-friendly recipe..."
		if req.Tier == recipemd.TierLuxury {
			crafting = "👨‍🍳 Crafting premium recipe..."
		}
		events <- Event{Type: EventStatus, Content: crafting}

		recipe, err = a.recipes.GetProjectResult(ctx, projectID, a.ResultTimeout)
		if err != nil {
			slog.Error("project result failed", "project_id", projectID, "error", err)
			events <- Event{Type: EventText, Content: "Error generating recipe. Please try again."}
			return
		}
		if a.cache != nil {
			a.cache.Set(ctx, req.Tier, req.Dish, recipe)
		}
	}

	if includeImages && a.images != nil {
		events <- Event{Type: EventStatus, Content: "📸 Generating AI images..."}
		recipe = a.images.AppendImages(ctx, recipe)
	}

	events <- Event{Type: EventText, Content: cleanRecipeOutput(recipe)}
}
