// Package password verifies and produces argon2id password hashes in PHC form:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// Salt and key are unpadded standard base64.
package password
