package orders

type Status string

const (
	StatusProcessing   Status = "processing"
	StatusShipping     Status = "shipping"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusReturned     Status = "returned"
	StatusRejectReturn Status = "reject-return"
)

// validNext holds the explicit (staff driven) order transitions. Cancelled and
// returned are also reached through DeriveStatus.
var validNext = map[Status]map[Status]bool{
	StatusProcessing:   {StatusShipping: true, StatusCompleted: true, StatusCancelled: true},
	StatusShipping:     {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:    {StatusRejectReturn: true, StatusCancelled: true},
	StatusRejectReturn: {StatusCompleted: true, StatusCancelled: true},
	StatusCancelled:    {},
	StatusReturned:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Open reports whether an order still counts toward its handler's load.
func (s Status) Open() bool {
	return s == StatusProcessing || s == StatusShipping
}

func (s Status) Known() bool {
	_, ok := validNext[s]
	return ok
}

type ItemStatus string

const (
	ItemProcessing        ItemStatus = "processing"
	ItemCompleted         ItemStatus = "completed"
	ItemReturnedRequested ItemStatus = "returned-requested"
	ItemReturned          ItemStatus = "returned"
	ItemCancelled         ItemStatus = "cancelled"
)

var validItemNext = map[ItemStatus]map[ItemStatus]bool{
	ItemProcessing:        {ItemCompleted: true, ItemCancelled: true},
	ItemCompleted:         {ItemReturnedRequested: true, ItemCancelled: true},
	ItemReturnedRequested: {ItemReturned: true, ItemCompleted: true},
	ItemReturned:          {},
	ItemCancelled:         {},
}

func CanTransitionItem(from, to ItemStatus) bool {
	return validItemNext[from][to]
}

func (s ItemStatus) Terminal() bool {
	return s == ItemCancelled || s == ItemReturned
}

// DeriveStatus recomputes the order status from its items. It runs at the end
// of every transaction that mutates an item.
func DeriveStatus(current Status, items []OrderItem) Status {
	if len(items) == 0 {
		return current
	}
	allReturned := true
	for _, it := range items {
		if !it.Status.Terminal() {
			return current
		}
		if it.Status != ItemReturned {
			allReturned = false
		}
	}
	if allReturned {
		return StatusReturned
	}
	return StatusCancelled
}
