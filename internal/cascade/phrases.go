package cascade

// #region renderer

// Renderer turns gate decisions into text.
type Renderer interface {
	// Respond renders a response anchored on a capacity dimension.
	Respond(dimension, category string, turn int) string
	// Fallback renders the message for a halted turn.
	Fallback(decision Decision, category string) string
}

// ContainMessage is the fixed minimal-risk message for CONTAIN. It does not
// vary by category or turn.
const ContainMessage = "I'm here with you. Your safety matters most right now. " +
	"If you might act on thoughts of harming yourself, please contact local emergency services " +
	"or a crisis line, and reach out to someone you trust."

// PhraseBook is a static Renderer. Phrases for a dimension rotate by turn.
type PhraseBook struct {
	Dimensions map[string][]string            `yaml:"dimensions"`
	Fallbacks  map[Decision]map[string]string `yaml:"fallbacks"` // decision -> category -> text; "" is the default
}

func (b PhraseBook) Respond(dimension, _ string, turn int) string {
	phrases := b.Dimensions[dimension]
	if len(phrases) == 0 {
		return "Let's take this one step at a time. What feels most important to you right now?"
	}
	if turn < 0 {
		turn = -turn
	}
	return phrases[turn%len(phrases)]
}

func (b PhraseBook) Fallback(decision Decision, category string) string {
	if decision == DecisionContain {
		return ContainMessage
	}
	byCategory := b.Fallbacks[decision]
	if text, ok := byCategory[category]; ok {
		return text
	}
	if text, ok := byCategory[""]; ok {
		return text
	}
	return "I want to make sure I understand. Can you tell me a little more?"
}

// #endregion renderer

// #region default-phrases

// DefaultPhraseBook returns the built-in phrases.
func DefaultPhraseBook() PhraseBook {
	return PhraseBook{
		Dimensions: map[string][]string{
			"grounding": {
				"You sound anchored right now. What is helping you stay steady?",
				"Notice your feet on the floor for a moment. What do you want to look at from here?",
			},
			"clarity": {
				"You're seeing this clearly. What feels like the next step?",
				"It sounds like the picture is coming together. Which part do you want to start with?",
			},
			"agency": {
				"You have options here. Which one feels most like yours?",
				"You've already been making choices. What would you like to decide next?",
			},
			"warmth": {
				"There is real kindness in how you're holding this. Can you offer some of it to yourself?",
				"It sounds like you care deeply. Who else might deserve that care, including you?",
			},
			"curiosity": {
				"That's an interesting thing to notice. What else do you wonder about it?",
				"Let's explore that together. What stands out when you look closer?",
			},
			"resilience": {
				"You've come through hard things before. What helped you then?",
				"That strength is still there. How might it help with this?",
			},
			"reflection": {
				"Looking back, what pattern do you notice?",
				"What does this tell you about what matters to you?",
			},
			"openness": {
				"You sound open to something new. What would you like to try?",
				"What possibility feels worth exploring?",
			},
		},
		Fallbacks: map[Decision]map[string]string{
			DecisionClarify: {
				"":          "I'm hearing a few different things at once. Which part feels most pressing?",
				"loss":      "It sounds like loss is part of this. Would you like to tell me more about who or what you're missing?",
				"conflict":  "There seems to be some friction here. Can you say more about what happened?",
				"isolation": "It sounds like you might be feeling on your own. Can you tell me more about that?",
				"overwhelm": "A lot seems to be piling up. What is weighing on you most?",
			},
			DecisionGround: {
				"":          "Let's slow down for a moment. Can you take one slow breath and notice where you are?",
				"crisis":    "Let's pause together. Feel your feet on the ground and take a slow breath. You don't have to figure everything out right now.",
				"loss":      "Grief can be a lot to carry. Let's take a breath together before going further.",
				"overwhelm": "Let's set everything else down for one moment. What is one small thing you can see around you?",
			},
		},
	}
}

// #endregion default-phrases
