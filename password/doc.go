// Package password hashes and verifies administrator passwords with argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The package never stores passwords; the admin directory keeps the encoded
// hash and the engine hands it back for verification.
package password
