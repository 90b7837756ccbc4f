package record

// Cursor is a pull iterator over records, shaped like sql.Rows:
//
//	for c.Next() {
//		r := c.Record()
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor interface {
	Next() bool
	Record() *Record
	Err() error
	Close() error
}

type sliceCursor struct {
	recs []*Record
	pos  int
}

// SliceCursor iterates over an in-memory slice.
func SliceCursor(recs []*Record) Cursor {
	return &sliceCursor{recs: recs, pos: -1}
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.recs) {
		c.pos = len(c.recs)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Record() *Record {
	if c.pos < 0 || c.pos >= len(c.recs) {
		return nil
	}
	return c.recs[c.pos]
}

func (c *sliceCursor) Err() error   { return nil }
func (c *sliceCursor) Close() error { return nil }

// Collect drains a cursor and closes it. On error no records are returned.
func Collect(c Cursor) ([]*Record, error) {
	defer c.Close()
	var out []*Record
	for c.Next() {
		out = append(out, c.Record())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
