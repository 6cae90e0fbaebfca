package scoring

import "testing"

func TestNormalizeTactic(t *testing.T) {
	cases := map[string]string{
		"Credential Access":    "credential-access",
		"credential_access":    "credential-access",
		"CredentialAccess":     "credential-access",
		"CREDENTIAL ACCESS":    "credential-access",
		" command-and-control": "command-and-control",
		"Command and Control":  "command-and-control",
		"":                     "",
	}
	for in, want := range cases {
		if got := NormalizeTactic(in); got != want {
			t.Fatalf("NormalizeTactic(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTacticRank(t *testing.T) {
	if TacticRank("Initial Access") != 1 || TacticRank("impact") != 12 {
		t.Fatalf("unexpected rank ordering")
	}
	if TacticRank("made-up") != 0 || TacticRank("") != 0 {
		t.Fatalf("expected unknown tactics to rank 0")
	}
}
