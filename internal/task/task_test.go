package task

import "testing"

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want Intent
	}{
		{
			name: "prime check wants a return value",
			desc: "check if a number is prime",
			want: Intent{WantsReturn: true},
		},
		{
			name: "endless input loop",
			desc: "create an endless loop that keeps asking for input",
			want: Intent{WantsLoop: true, Interactive: true},
		},
		{
			name: "display only",
			desc: "print a multiplication table",
			want: Intent{WantsDisplay: true},
		},
		{
			name: "explicit error handling",
			desc: "read a number with error handling for bad values",
			want: Intent{WantsErrorHandling: true},
		},
		{
			name: "contextual error handling in interactive loop",
			desc: "keep asking the user for input and reject invalid values",
			want: Intent{WantsLoop: true, Interactive: true, WantsErrorHandling: true},
		},
		{
			name: "calculate implies return",
			desc: "calculate the factorial of a number",
			want: Intent{WantsReturn: true},
		},
		{
			name: "both print and compute keeps both flags",
			desc: "compute the sum and print it",
			want: Intent{WantsReturn: true, WantsDisplay: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectIntent(tt.desc)
			if got != tt.want {
				t.Errorf("DetectIntent(%q) = %+v, want %+v", tt.desc, got, tt.want)
			}
		})
	}
}

func TestIsModification(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{
			name: "fresh task",
			task: New("check if a number is prime"),
			want: false,
		},
		{
			name: "existing code attached",
			task: NewModification("func f() {}", "make it loop forever"),
			want: true,
		},
		{
			name: "modify keyword",
			task: New("modify the loop so it never exits"),
			want: true,
		},
		{
			name: "change this code phrase",
			task: New("change this code to print errors"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsModification(); got != tt.want {
				t.Errorf("IsModification() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskIdentity(t *testing.T) {
	a := New("sort a list")
	b := New("sort a list")
	if a.ID == b.ID {
		t.Error("two tasks share an ID")
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}
