/*

Package db stores atoms: immutable byte content addressed by its hash.

On disk a db looks like this:

	config.json
	tmp/
	atom/sha256/d2c/71a/d2c71afc5848aa2a33ff08621217f24dab485077d95d788c5170995285a5d65d

The hash covers the decoded content only, so for a sha256 db the file
name matches what sha256sum prints for the original data.  Each file
carries a one-line header naming its codec and decoded length.

Anything that can Retrieve is a Store.  *Db serves a local directory;
CachedStore puts an in-process cache in front of any other Store, and
the s3 and redis subpackages add remote layers.

*/

package db
