package redis

// Key prefixes for primary entity storage.
const (
	prefixRule  = "recur:rule:"
	prefixEvent = "recur:evt:"
)

// Key prefixes for sorted set indexes.
const (
	zRuleOrg        = "recur:z:rule:org:"  // + org ID, scored by creation time
	zRuleCheckpoint = "recur:z:rule:ckpt:" // + org ID, scored by checkpoint date
	zEventOrg       = "recur:z:evt:org:"   // + org ID, live events scored by occurrence date
)

// Key prefixes for set indexes.
const (
	sRuleInstances = "recur:s:rule:inst:" // + rule ID, every instance ever materialized
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
