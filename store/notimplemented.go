package store

// notimplemented.go stubs the operations spec §9 calls out as "declared
// but unimplemented in source": copy-from-URL, page-blob range ops,
// append-blob semantics, blob undelete, and page-blob sequence-number
// update. Each performs no state mutation and returns KindNotImplemented,
// per spec §7.

func (s *Store) CopyBlob(requestID string) error {
	return newErr(requestID, KindNotImplemented, "copy-from-URL is not implemented")
}

func (s *Store) PutPageRange(requestID string) error {
	return newErr(requestID, KindNotImplemented, "page-range operations are not implemented")
}

func (s *Store) AppendBlock(requestID string) error {
	return newErr(requestID, KindNotImplemented, "append-blob semantics are not implemented")
}

func (s *Store) UndeleteBlob(requestID string) error {
	return newErr(requestID, KindNotImplemented, "blob undelete is not implemented")
}

func (s *Store) UpdateSequenceNumber(requestID string) error {
	return newErr(requestID, KindNotImplemented, "sequence-number update is not implemented")
}

func (s *Store) Resize(requestID string) error {
	return newErr(requestID, KindNotImplemented, "page-blob resize is not implemented")
}
