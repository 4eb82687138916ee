package retrieval

import "testing"

func aliases(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func TestVisible(t *testing.T) {
	cases := []struct {
		name      string
		scope     string
		requester map[string]struct{}
		want      bool
	}{
		{"empty scope is open", "", aliases("田中"), true},
		{"all is open", "all", nil, true},
		{"japanese open scope", "全員", aliases("佐藤"), true},
		{"open scope is case insensitive", "Public", nil, true},
		{"named scope admits the named person", "佐藤", aliases("佐藤"), true},
		{"named scope rejects others", "佐藤", aliases("鈴木"), false},
		{"scope containing the alias admits", "佐藤と山田", aliases("佐藤"), true},
		{"alias containing the scope admits", "佐藤", aliases("佐藤 花子"), true},
		{"partial name scope admits the full name", "佐藤花", aliases("佐藤花子"), true},
		{"no aliases sees only open records", "佐藤", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Visible(tc.scope, tc.requester); got != tc.want {
				t.Errorf("Visible(%q, %v) = %v, want %v", tc.scope, tc.requester, got, tc.want)
			}
		})
	}
}
