package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/auth/login":                    "/v1/auth/login",
		"/v1/admin/users/jdoe/unlock":       "/v1/admin/users/:id/unlock",
		"/v1/admin/roles/ADMIN/permissions": "/v1/admin/roles/:id/permissions",
		"/v1/audit/logins?page=2":           "/v1/audit/logins",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
