// Package members answers two questions the register asks about people:
// does this user id exist (and is it active), and does this password belong to it.
//
// Member records are owned by the wider application; this package only reads them.
package members
