package cctx

type ContextKey string

var (
	AdminSubject ContextKey = "vs:admin"
	EventID      ContextKey = "vs:eid"
)
