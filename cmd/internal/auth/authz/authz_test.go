package authz

import "testing"

func TestAllow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, BulkSignOut, true},
		{RoleMentor, BulkSignOut, true},
		{RoleMentor, ViewRoster, true},
		{RoleMentor, SignOutOther, true},
		{RoleMember, SignInSelf, true},
		{RoleMember, SignOutSelf, true},
		{RoleMember, ViewOwnHistory, true},
		{RoleMember, SignOutOther, false},
		{RoleMember, BulkSignOut, false},
		{RoleMember, ViewRoster, false},
		{RoleCommunity, ViewStats, false},
		{RoleCommunity, SignInSelf, true},
		{Role("guest"), SignInSelf, false},
		{"", ViewRoster, false},
		{RoleAdmin, Action("delete_everything"), false},
	}

	for _, tc := range cases {
		if got := Allow(tc.role, tc.action); got != tc.want {
			t.Fatalf("Allow(%q, %q)=%v want=%v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"admin", RoleAdmin, true},
		{" Mentor ", RoleMentor, true},
		{"MEMBER", RoleMember, true},
		{"community", RoleCommunity, true},
		{"root", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseRole(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ParseRole(%q)=(%q,%v) want=(%q,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
