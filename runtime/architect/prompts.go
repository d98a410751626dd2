package architect

import (
	"encoding/json"
	"fmt"
	"strings"
)

// systemPrompt frames the generator as a world-architect agent producing the
// general skeleton of a game universe. The hard rules mirror the backend
// validation: JSON only, schema-conformant, at most four questions, no
// conflict field when the caller disabled it.
const systemPrompt = `You are a world-architect agent. You build the overall skeleton of a universe for a text-based game engine.

Key idea:
- game_prompt = WORLD_CORE: a concise preface/synopsis of the SETTING.
  It is NOT an instruction, not second-person address, and not a game-master role.
  WORLD_CORE must contain no plot, no concrete scenes, missions, characters or events.
  Only the big picture: era, technology/magic, social order, defining realities.
- world_bible = CORE_LORE: long, dense, detailed lore of the world.
  It is the reference text that factions, locations and details will later be generated from.
  CORE_LORE must be substantially longer than WORLD_CORE and cover the world in broad strokes.
- global_conflict (optional): a world-scale macro conflict (not a quest, not a specific scene).

Hard rules:
- Return ONLY valid JSON. No Markdown, comments or surrounding text.
- The JSON must strictly conform to SCHEMA (see below).
- Focus on the general, not the particular: no characters, NPC names, story arcs or concrete events.
- You may mention "types of powers/groups" and "example kinds of locations" without specifics or character names.
- plot_type only influences emphasis/themes/conflict kinds and pacing; it never becomes a plot.
- Ask questions only if a quality WORLD_CORE + CORE_LORE CANNOT be produced without them.
- At most 4 questions.
- Never ask for what the user already provided: plot_type and whether a global conflict is wanted.
- If is_global_conflict_enabled=false: global_conflict must be null/absent.
- Write neutrally (third person), never "you/your players/react/guide".`

// repairParsePrompt instructs the generator to fix syntactically invalid JSON.
const repairParsePrompt = "You repair JSON. Return ONLY valid JSON conforming to SCHEMA, with no surrounding text."

// repairSchemaPrompt instructs the generator to fix schema-invalid JSON.
const repairSchemaPrompt = "You repair JSON so that it strictly conforms to SCHEMA. Return ONLY the JSON, with no surrounding text."

func userPromptInitial(req StartRequest) string {
	var b strings.Builder
	writeInput(&b, req)
	b.WriteString("\nTask:\n")
	b.WriteString("1) If the input is already good enough, return mode=done with the skeleton right away.\n")
	b.WriteString("2) If critically important information is missing, return mode=questions and ask.\n\n")
	b.WriteString("Quality bar for mode=done:\n")
	b.WriteString("- WORLD_CORE (game_prompt) must read like a short preface to the world.\n")
	b.WriteString("- CORE_LORE (world_bible) must be long and structured (lists/sections are fine).\n")
	b.WriteString("- No instructions, no second person, no \"you are the game master\", \"react\", \"describe\".\n")
	b.WriteString("- No concrete story scenes/missions/characters. Only how the world works.\n\n")
	b.WriteString("Suggested CORE_LORE coverage (content, not necessarily headings):\n")
	b.WriteString("- World overview and scale (planet/continents/megacities/multiverse)\n")
	b.WriteString("- Technology/magic/science (what is possible, what is forbidden/dangerous)\n")
	b.WriteString("- Social order, economy, power (which forces dominate)\n")
	b.WriteString("- Culture/daily life (how ordinary people live)\n")
	b.WriteString("- Geography/location kinds (tiers/regions/biomes), without concrete plot points\n")
	b.WriteString("- Kinds of threats and conflicts (local, systemic)\n")
	b.WriteString("- Entry points for play (which \"roles\" are typically possible), no character names\n\n")
	writeSchema(&b)
	return b.String()
}

func userPromptFinal(req StartRequest, answers map[string]Answer) string {
	answersJSON, _ := json.Marshal(answers)
	var b strings.Builder
	writeInput(&b, req)
	fmt.Fprintf(&b, "- user_answers: %s\n\n", answersJSON)
	b.WriteString("Now you MUST return mode=done and fill in the skeleton.\n")
	b.WriteString("Same rules: no second person or instructions; no plot/characters/scenes.\n")
	b.WriteString("WORLD_CORE = short preface; CORE_LORE = long base lore.\n\n")
	writeSchema(&b)
	return b.String()
}

func repairPrompt(badJSON, errText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invalid JSON:\n%s\n\nError:\n%s\n\n", badJSON, errText)
	writeSchema(&b)
	return b.String()
}

func writeInput(b *strings.Builder, req StartRequest) {
	b.WriteString("INPUT:\n")
	fmt.Fprintf(b, "- world_description: %s\n", strings.TrimSpace(req.WorldDescription))
	fmt.Fprintf(b, "- plot_type: %s\n", req.PlotType)
	fmt.Fprintf(b, "- plot_type_custom: %s\n", strings.TrimSpace(req.PlotTypeCustom))
	fmt.Fprintf(b, "- plot_text: %s\n", req.PlotText())
	fmt.Fprintf(b, "- is_global_conflict_enabled: %t\n", req.IsGlobalConflictEnabled)
}

func writeSchema(b *strings.Builder) {
	b.WriteString("SCHEMA:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n")
}
