package identity

import (
	"regexp"
	"strings"
	"testing"
)

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"John Doe!", "John_Doe_"},
		{"alice", "alice"},
		{"user-123_x", "user-123_x"},
		{"émilie", "_milie"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
		{"a.b@c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeIsIdempotentAndRestricted(t *testing.T) {
	inputs := []string{
		"John Doe!", "  spaced  out  ", "ümlaut-ß", "guest-bob-1234",
		strings.Repeat("xy!", 40), "日本語の名前", "a",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
		if !identityPattern.MatchString(once) {
			t.Errorf("Sanitize(%q) = %q does not match %s", in, once, identityPattern)
		}
	}
}

func TestFromPrincipal(t *testing.T) {
	tests := []struct {
		name string
		p    Principal
		want string
	}{
		{"display name", Principal{UID: "abc", DisplayName: "Jane  Q. Public", Email: "jane@example.com"}, "Jane_Q_Public"},
		{"email local part", Principal{UID: "abc", Email: "jane.doe@example.com"}, "jane_doe"},
		{"uid fallback", Principal{UID: "0123456789abcdef"}, "user_01234567"},
		{"short uid", Principal{UID: "xyz"}, "user_xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPrincipal(tt.p); got != tt.want {
				t.Fatalf("FromPrincipal = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGuestIdentity(t *testing.T) {
	a := Guest("Bob Smith")
	b := Guest("Bob Smith")
	if a == b {
		t.Fatalf("expected unique guest identities, got %q twice", a)
	}
	if !strings.HasPrefix(a, "guest-Bob_Smith-") {
		t.Fatalf("unexpected guest identity %q", a)
	}
	if !identityPattern.MatchString(a) {
		t.Fatalf("guest identity %q is not a valid transport identity", a)
	}

	long := Guest(strings.Repeat("name ", 30))
	if len(long) > MaxLength || !identityPattern.MatchString(long) {
		t.Fatalf("long guest identity %q violates limits", long)
	}
	if DisplayNameFromIdentity(a) != "Bob Smith" {
		t.Fatalf("expected display name to round-trip, got %q", DisplayNameFromIdentity(a))
	}
}

func TestAnonymousName(t *testing.T) {
	cases := map[string]string{
		"guest-123":     "Guest",
		"user-abc":      "User",
		"User_1":        "User",
		"temp-host-123": "Participant",
	}
	for in, want := range cases {
		if got := AnonymousName(in); got != want {
			t.Errorf("AnonymousName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInitials(t *testing.T) {
	cases := map[string]string{
		"":             "U",
		"bob":          "BO",
		"Jane Q Doe":   "JD",
		"x":            "X",
		"  ada  love ": "AL",
	}
	for in, want := range cases {
		if got := Initials(in); got != want {
			t.Errorf("Initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseKind(t *testing.T) {
	if ParseKind("guest") != KindGuest || ParseKind("authenticated") != KindAuthenticated {
		t.Fatalf("known kinds should parse")
	}
	if ParseKind("admin") != KindAnonymous {
		t.Fatalf("unknown kind should be anonymous")
	}
}
