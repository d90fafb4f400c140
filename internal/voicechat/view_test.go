package voicechat

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		state       State
		question    Box
		reply       Box
		buttonLabel string
		help        bool
	}{
		{
			name:        "empty idle screen shows placeholders",
			state:       State{},
			question:    Box{Label: QuestionLabel, Text: QuestionPlaceholder, Placeholder: true},
			reply:       Box{Label: ReplyLabel, Text: ReplyPlaceholder, Placeholder: true},
			buttonLabel: SpeakLabel,
		},
		{
			name:        "answered exchange",
			state:       State{Transcription: "گندم", Reply: "جواب"},
			question:    Box{Label: QuestionLabel, Text: "گندم"},
			reply:       Box{Label: ReplyLabel, Text: "جواب"},
			buttonLabel: SpeakLabel,
		},
		{
			name:        "permission pending counts as recording",
			state:       State{Phase: Starting},
			question:    Box{Label: QuestionLabel, Text: QuestionPlaceholder, Placeholder: true},
			reply:       Box{Label: ReplyLabel, Text: ReplyPlaceholder, Placeholder: true},
			buttonLabel: ListeningLabel,
		},
		{
			name:        "capturing with help open",
			state:       State{Phase: Capturing, HelpVisible: true},
			question:    Box{Label: QuestionLabel, Text: QuestionPlaceholder, Placeholder: true},
			reply:       Box{Label: ReplyLabel, Text: ReplyPlaceholder, Placeholder: true},
			buttonLabel: ListeningLabel,
			help:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := Render(tt.state)
			if v.Question != tt.question {
				t.Errorf("Question = %+v, want %+v", v.Question, tt.question)
			}
			if v.Reply != tt.reply {
				t.Errorf("Reply = %+v, want %+v", v.Reply, tt.reply)
			}
			if v.ButtonLabel != tt.buttonLabel {
				t.Errorf("ButtonLabel = %q, want %q", v.ButtonLabel, tt.buttonLabel)
			}
			if got := v.Help != nil; got != tt.help {
				t.Errorf("help shown = %v, want %v", got, tt.help)
			}
			if v.Title != Title || v.Footer != Footer {
				t.Errorf("title/footer = %q/%q", v.Title, v.Footer)
			}
		})
	}
}

func TestView_String(t *testing.T) {
	t.Parallel()

	out := Render(State{Phase: Capturing, Reply: "جواب", Loading: true, HelpVisible: true}).String()
	for _, want := range []string{
		Title, Subtitle, QuestionPlaceholder, "جواب", ListeningLabel, "⏳", HelpTitle, "4. " + HelpSteps[3], Footer,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, ReplyPlaceholder) {
		t.Error("reply placeholder shown next to a reply")
	}

	idle := Render(State{}).String()
	if strings.Contains(idle, HelpTitle) || strings.Contains(idle, "⏳") {
		t.Errorf("idle output shows help or loading:\n%s", idle)
	}
}

func TestView_AlertStaysOnScreen(t *testing.T) {
	t.Parallel()

	v := Render(State{Alert: PermissionDeniedAlert})
	if v.Alert != PermissionDeniedAlert {
		t.Fatalf("View.Alert = %q", v.Alert)
	}
	if out := v.String(); !strings.Contains(out, PermissionDeniedAlert) {
		t.Errorf("output missing alert:\n%s", out)
	}
	if out := Render(State{}).String(); strings.Contains(out, "⚠️") {
		t.Errorf("alert marker without an alert:\n%s", out)
	}
}
