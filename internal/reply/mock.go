package reply

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// Canned replies for the mock provider.
const (
	mockGreetingFirst = "Hello! Welcome, I'm really glad you're here. " +
		"This is a safe space where you can share whatever is on your mind. " +
		"There's no rush and no judgment. How are you feeling today?"
	mockGreetingReturning = "Welcome back! It's good to hear from you again. " +
		"How have things been since we last talked?"
	mockStress = "I hear you. It sounds like you've been carrying a lot of weight. " +
		"Stress can really take a toll on us, both mentally and physically. " +
		"Can you tell me a bit more about what's been causing the most pressure? " +
		"Sometimes just naming it can help lighten the load a little."
	mockSadness = "Thank you for sharing that with me. Feeling sad is a completely valid " +
		"emotion, and it takes courage to acknowledge it. I want you to know that " +
		"what you're feeling matters. How long have you been feeling this way? " +
		"Understanding the timeline can help us figure out the best way to support you."
	mockPositive = "That's really wonderful to hear! It's so important to recognize and " +
		"celebrate the positive moments, no matter how small they might seem. " +
		"What do you think has been contributing to this improvement? " +
		"I'd also love to check in. Is there anything else on your mind?"
	mockSleep = "Sleep is so fundamental to how we feel during the day, and I'm sorry " +
		"that rest hasn't been coming easily. Poor sleep can amplify everything else " +
		"we're dealing with. Can you tell me more about what your nights look like? " +
		"For example, is the difficulty with falling asleep, staying asleep, or both?"
	mockRelationship = "Relationships are such an important part of our lives, and when they're " +
		"difficult, it can affect everything else. I appreciate you trusting me " +
		"with this. Can you share a bit more about what's been happening? " +
		"I'm here to listen without judgment."
	mockWorkSchool = "Work and school pressures are something so many people struggle with, " +
		"and it's completely understandable to feel the weight of it. You're not " +
		"alone in this. What aspect has been the most challenging for you lately? " +
		"Let's see if we can break it down together."
	mockFarewell = "Thank you for spending this time with me today. I want you to know that " +
		"you're always welcome to come back whenever you need to talk. " +
		"Remember to be kind to yourself, you deserve it. Take care, " +
		"and don't hesitate to reach out anytime."
	mockDefault = "Thank you for sharing that with me. I want to make sure I understand " +
		"you well. Could you tell me a bit more about what's been on your mind? " +
		"I'm here to listen, and there's no wrong thing to say."
)

type mockRule struct {
	keywords  []string
	wholeWord bool
	reply     func(Request) string
}

func fixed(s string) func(Request) string {
	return func(Request) string { return s }
}

// Checked in order; the first rule with a matching keyword answers.
var mockRules = []mockRule{
	{keywords: []string{"bye", "goodbye", "see you", "take care", "gotta go", "talk later"}, reply: fixed(mockFarewell)},
	{keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "hola", "buenos"}, wholeWord: true, reply: greeting},
	{keywords: []string{"sleep", "insomnia", "can't sleep", "nightmares", "tired", "exhausted"}, reply: fixed(mockSleep)},
	{keywords: []string{"stress", "anxious", "anxiety", "worried", "nervous", "tense", "overwhelmed"}, reply: fixed(mockStress)},
	{keywords: []string{"sad", "depressed", "depression", "down", "unhappy", "crying", "tears"}, reply: fixed(mockSadness)},
	{keywords: []string{"relationship", "partner", "family", "friend", "lonely", "breakup", "divorce"}, reply: fixed(mockRelationship)},
	{keywords: []string{"work", "job", "school", "college", "boss", "coworker", "grades", "career"}, reply: fixed(mockWorkSchool)},
	{keywords: []string{"better", "good", "great", "happy", "improved", "progress", "grateful"}, reply: fixed(mockPositive)},
}

func greeting(req Request) string {
	if req.FirstContact {
		return mockGreetingFirst
	}
	return mockGreetingReturning
}

// Mock answers from keyword patterns without calling out. It is used in
// development and tests.
type Mock struct{}

// NewMock returns the pattern-matching generator.
func NewMock() *Mock {
	return &Mock{}
}

func (*Mock) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	lower := strings.ToLower(req.Message)
	words := wordSet(lower)
	for _, r := range mockRules {
		for _, k := range r.keywords {
			if matches(lower, words, k, r.wholeWord) {
				return r.reply(req), nil
			}
		}
	}
	return mockDefault, nil
}

// matches checks multi-word keywords as phrases. Short greetings like "hi"
// must be whole words so "this" or "nothing" do not count.
func matches(lower string, words map[string]bool, keyword string, wholeWord bool) bool {
	if wholeWord && !strings.Contains(keyword, " ") {
		return words[keyword]
	}
	return strings.Contains(lower, keyword)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		set[w] = true
	}
	return set
}
