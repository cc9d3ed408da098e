// Package presence tracks which connections are editing which items.
//
// Presence is advisory, not exclusive: it drives "someone is editing"
// indicators in clients but never blocks a second editor, so concurrent
// edits on the same item are possible and the last committed write wins.
// State lives only in memory on the owning process; it is rebuilt by
// peers from the broadcast stream and a crashed process's entries are
// retired via the disconnect cleanup events its peers observe.
package presence
