package redis

// Key prefixes for primary entity storage.
const (
	prefixEventType    = "courier:evtype:"
	prefixSubscription = "courier:sub:"
	prefixEvent        = "courier:evt:"
	prefixDelivery     = "courier:del:"
	prefixDLQ          = "courier:dlq:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventIdem = "courier:u:evt:idem:"
)

// Key prefixes for sorted set indexes.
const (
	zEventTypeAll = "courier:z:evtype:all"
	zSubTenant    = "courier:z:sub:tenant:" // + tenant ID
	zEventTenant  = "courier:z:evt:tenant:" // + tenant ID
	zDeliverySub  = "courier:z:del:sub:"    // + subscription ID
	zDeliveryEvt  = "courier:z:del:evt:"    // + event ID
	zDeliveryDue  = "courier:z:del:due"
	zDeliveryHeld = "courier:z:del:claimed" // scored by claim deadline
	zDLQAll       = "courier:z:dlq:all"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
