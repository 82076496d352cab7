package projectdetect

import "testing"

func TestExtractRepoName_PlainPath(t *testing.T) {
	got := ExtractRepoName("/home/dev/code/activity-tracker")
	if got != "activity-tracker" {
		t.Errorf("ExtractRepoName = %q, want activity-tracker", got)
	}
}

func TestExtractRepoName_StripsTrailingBranchAnnotation(t *testing.T) {
	got := ExtractRepoName("~/code/activity-tracker (main)")
	if got != "activity-tracker" {
		t.Errorf("ExtractRepoName = %q, want activity-tracker", got)
	}
}

func TestExtractRepoName_TrailingSlash(t *testing.T) {
	got := ExtractRepoName("/home/dev/code/activity-tracker/")
	if got != "activity-tracker" {
		t.Errorf("ExtractRepoName = %q, want activity-tracker", got)
	}
}

func TestExtractRepoName_EmptyAndHomeYieldEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "~", "."} {
		if got := ExtractRepoName(in); got != "" {
			t.Errorf("ExtractRepoName(%q) = %q, want empty", in, got)
		}
	}
}

func TestMostCommon_PicksMajority(t *testing.T) {
	contexts := []string{
		"/home/dev/code/activity-tracker",
		"/home/dev/code/activity-tracker (feature/x)",
		"/home/dev/code/other-repo",
	}
	got := MostCommon(contexts)
	if got != "activity-tracker" {
		t.Errorf("MostCommon = %q, want activity-tracker", got)
	}
}

func TestMostCommon_TiesBrokenByName(t *testing.T) {
	contexts := []string{"/code/zeta", "/code/alpha"}
	got := MostCommon(contexts)
	if got != "alpha" {
		t.Errorf("MostCommon = %q, want alpha (lexicographically first on tie)", got)
	}
}

func TestMostCommon_EmptyInputYieldsEmpty(t *testing.T) {
	if got := MostCommon(nil); got != "" {
		t.Errorf("MostCommon(nil) = %q, want empty", got)
	}
	if got := MostCommon([]string{"", "  "}); got != "" {
		t.Errorf("MostCommon of blanks = %q, want empty", got)
	}
}
