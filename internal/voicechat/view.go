package voicechat

import (
	"fmt"
	"strings"
)

// Screen texts.
const (
	Title               = "رائے"
	Subtitle            = "Raa'ee - The Agri-Advisor Bot"
	Tagline             = "آپ کا ذاتی زرعی مشیر - کاشتکاری کے ہر سوال کا جواب"
	QuestionLabel       = "آپ کا سوال"
	QuestionPlaceholder = "مائیک بٹن دبا کر اپنا سوال بولیں..."
	ReplyLabel          = "رائے کا جواب"
	ReplyPlaceholder    = "جواب یہاں ظاہر ہوگا..."
	ListeningLabel      = "سن رہا ہے..."
	SpeakLabel          = "بولیں"
	HelpTitle           = "استعمال کی رہنمائی"
	LoadingText         = "..."
	Footer              = "پاکستانی کسانوں کے لیے بنایا گیا"
)

// HelpSteps are the numbered usage steps of the help overlay.
var HelpSteps = []string{
	"دائیں طرف مائیک بٹن دبائیں اور اپنا سوال بولیں",
	"آپ کا سوال درمیان میں ظاہر ہوگا",
	"رائے بوٹ کا جواب نیچے دیکھیں",
	"مزید سوالات کے لیے دوبارہ ریکارڈ کریں",
}

// Box is a labelled text area that falls back to a placeholder.
type Box struct {
	Label string
	Text  string

	// Placeholder is true when Text is the placeholder.
	Placeholder bool
}

// View is the rendered screen. It is a pure function of [State].
type View struct {
	Title    string
	Subtitle string
	Tagline  string

	Question Box
	Reply    Box

	// Recording selects the button icon.
	Recording   bool
	ButtonLabel string

	// Help is nil when the overlay is hidden.
	Help []string

	Loading bool
	Alert   string
	Footer  string
}

// Render builds the view for s.
func Render(s State) View {
	v := View{
		Title:       Title,
		Subtitle:    Subtitle,
		Tagline:     Tagline,
		Question:    box(QuestionLabel, s.Transcription, QuestionPlaceholder),
		Reply:       box(ReplyLabel, s.Reply, ReplyPlaceholder),
		Recording:   s.Recording(),
		ButtonLabel: SpeakLabel,
		Loading:     s.Loading,
		Alert:       s.Alert,
		Footer:      Footer,
	}
	if v.Recording {
		v.ButtonLabel = ListeningLabel
	}
	if s.HelpVisible {
		v.Help = HelpSteps
	}
	return v
}

func box(label, text, placeholder string) Box {
	if text == "" {
		return Box{Label: label, Text: placeholder, Placeholder: true}
	}
	return Box{Label: label, Text: text}
}

// String renders v for a terminal.
func (v View) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌱 %s\n%s\n%s\n\n", v.Title, v.Subtitle, v.Tagline)
	writeBox(&b, v.Question)
	writeBox(&b, v.Reply)

	icon := "🎤"
	if v.Recording {
		icon = "🔴"
	}
	fmt.Fprintf(&b, "%s %s\n", icon, v.ButtonLabel)
	if v.Loading {
		fmt.Fprintf(&b, "⏳ %s\n", LoadingText)
	}
	if v.Alert != "" {
		fmt.Fprintf(&b, "⚠️  %s\n", v.Alert)
	}
	if v.Help != nil {
		fmt.Fprintf(&b, "\n❓ %s\n", HelpTitle)
		for i, step := range v.Help {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}
	fmt.Fprintf(&b, "\n%s\n", v.Footer)
	return b.String()
}

func writeBox(b *strings.Builder, box Box) {
	fmt.Fprintf(b, "[%s]\n", box.Label)
	if box.Placeholder {
		fmt.Fprintf(b, "  (%s)\n\n", box.Text)
		return
	}
	fmt.Fprintf(b, "  %s\n\n", box.Text)
}
