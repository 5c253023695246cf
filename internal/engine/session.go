package engine

// Session carries the per-conversation state the persona needs: the
// user's name, once they have introduced themselves. Sessions are not
// persisted; they are rebuilt from conversation history on every turn.
type Session struct {
	engine *Engine
	name   string
}

// NewSession starts an empty session.
func (e *Engine) NewSession() *Session {
	return &Session{engine: e}
}

// Observe feeds one historical user message into the session. The first
// message that yields a name fixes it; later introductions are ignored.
func (s *Session) Observe(userMessage string) {
	if s.name != "" {
		return
	}
	if name := s.engine.ExtractName(userMessage); name != "" {
		s.name = name
	}
}

// Name returns the stored name, or "".
func (s *Session) Name() string {
	return s.name
}

// Address returns how the persona addresses the user: "bé <Name>" once a
// name is known, the generic endearment before that.
func (s *Session) Address() string {
	if s.name != "" {
		return s.engine.rules.AddressPrefix + s.name
	}
	return s.engine.rules.DefaultAddress
}

// Reply produces the persona's reply to a user message. A message that
// introduces a name while none is stored becomes a name-introduction
// reply and fixes the name; everything else goes through the intent
// table.
func (s *Session) Reply(userMessage string) string {
	if s.name == "" {
		if name := s.engine.ExtractName(userMessage); name != "" {
			s.name = name
			return s.engine.render("name_introduction", s.Address(), name)
		}
	}

	intent := s.engine.Classify(userMessage)
	return s.engine.render(string(intent), s.Address(), s.name)
}

// EditedReply is Reply with the edit acknowledgement prepended. It is
// used when a reply is regenerated after the user edits a message.
func (s *Session) EditedReply(userMessage string) string {
	notice := s.engine.render("edit_notice", s.Address(), s.name)
	return notice + "\n\n" + s.Reply(userMessage)
}
