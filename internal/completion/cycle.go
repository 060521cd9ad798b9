package completion

// Cycler tracks repeated Tab presses. The first press completes from the
// current buffer; later presses on an untouched buffer step through the same
// candidate list, each time rewriting the original token.
type Cycler struct {
	active     bool
	base       string
	baseCursor int
	result     Result
	index      int
	lastBuffer string
	lastCursor int
	quote      bool
}

// Next returns the buffer and cursor after one Tab press. ok is false when
// there is nothing to complete.
func (c *Cycler) Next(req Request, quote bool) (buffer string, cursor int, ok bool) {
	if !c.active || req.Buffer != c.lastBuffer || req.Cursor != c.lastCursor {
		res := Complete(req)
		if len(res.Candidates) == 0 {
			c.Reset()
			return req.Buffer, req.Cursor, false
		}
		c.active = true
		c.base = req.Buffer
		c.baseCursor = req.Cursor
		c.result = res
		c.index = 0
		c.quote = quote
	} else {
		c.index = (c.index + 1) % len(c.result.Candidates)
	}
	buffer, cursor = c.result.Apply(c.base, c.baseCursor, c.index, c.quote)
	c.lastBuffer, c.lastCursor = buffer, cursor
	return buffer, cursor, true
}

// Current returns the candidate list being cycled and the selected index.
func (c *Cycler) Current() ([]string, int) {
	if !c.active {
		return nil, -1
	}
	return c.result.Candidates, c.index
}

func (c *Cycler) Reset() {
	*c = Cycler{}
}
