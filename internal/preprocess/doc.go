// Package preprocess scrubs crash logs before they are sent to a model.
//
// Crash logs carry user names in home directory paths, host addresses from
// network stacks, and the occasional credential from a command line or
// environment dump. A Redactor replaces each sensitive value with a short
// placeholder derived from its hash, so repeated values stay correlated:
//
//	C:\Users\alice\AppData\Local\JetBrains  →  C:\Users\[USER:2bd8]\AppData\Local\JetBrains
//	-Duser.home=/Users/alice                →  -Duser.home=/Users/[USER:2bd8]
//
// Configuration via ~/.crashdoc.yaml:
//
//	redaction:
//	  enabled: true
//	  patterns:
//	    - user_home
//	    - ipv4
//	    - email
package preprocess
