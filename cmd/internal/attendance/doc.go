// Package attendance is the clubhouse presence register.
//
// A Record is one physical visit: it is opened when a member signs in and
// closed exactly once when they sign out. The Store owns persistence; the
// Service is the only writer of sign-in/sign-out transitions and derives
// durations, rosters and statistics from stored records.
//
// At most one open record exists per user. PostgresStore enforces that with a
// partial unique index; InMemoryStore with an index guarded by the same mutex
// as the insert.
package attendance
