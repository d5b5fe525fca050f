package refdb

// Close flushes and closes every file of the database. A second Close
// returns ErrClosed.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	return translateError("close", db.eng.Close())
}
