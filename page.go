package pagecache

// Page is one page of a collection. Next == "" means there are no more
// results. Items is never nil on a page returned by a Pager.
type Page[T any] struct {
	Items []T    `json:"items" msgpack:"items" cbor:"1,keyasint"`
	Next  string `json:"next_token,omitempty" msgpack:"next,omitempty" cbor:"2,keyasint,omitempty"`
}

// Last reports whether the page ends the collection.
func (p Page[T]) Last() bool { return p.Next == "" }

func emptyPage[T any]() Page[T] { return Page[T]{Items: []T{}} }
