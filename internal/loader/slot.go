package loader

import "github.com/GriffinCanCode/docloader/internal/document"

// docSlot owns at most one document at a time.
type docSlot struct {
	doc *document.Document
}

func (s *docSlot) current() *document.Document {
	return s.doc
}

// replace releases the held document and takes ownership of next.
func (s *docSlot) replace(next *document.Document) {
	s.release()
	s.doc = next
}

func (s *docSlot) release() {
	if s.doc != nil {
		s.doc.Close()
		s.doc = nil
	}
}

// take hands the held document to the caller and leaves the slot empty.
func (s *docSlot) take() *document.Document {
	doc := s.doc
	s.doc = nil
	return doc
}
