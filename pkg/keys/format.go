package keys

const (
	// notation dictionary for key formats:
	// c   = conversation
	// m   = message
	// u   = user
	// idx = index
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment (e.g. <conv_key>, <msg_id>)

	// primary storage key formats
	MessageKey  = "c:%s:m:%s-%s" // c:<conv_key>:m:<ts_padded>-<seq_padded>
	ConvMetaKey = "c:%s:meta"    // c:<conv_key>:meta
	MessageIdx  = "m:%s"         // m:<msg_id> -> storage key of the record

	// user → conversation markers
	UserConvIdx = "idx:u:%s:c:%s" // idx:u:<user_id>:c:<conv_key>

	// unread counters
	UnreadIdx = "idx:unread:c:%s:u:%s" // idx:unread:c:<conv_key>:u:<user_id>

	// padding widths (fixed for lexicographic ordering; both cover the
	// full range of their integer type so a counter can never outgrow
	// its pad and break key ordering)
	TSPadWidth  = 20 // %020d, int64 nanoseconds
	SeqPadWidth = 20 // %020d, full uint64 range

	// ConvKeySep joins the two sorted participant ids. It must never
	// appear in the ":"-separated key grammar above.
	ConvKeySep = "~"
)
