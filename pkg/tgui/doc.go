// Package tgui holds small Telegram UI helpers: keyboard builders, callback
// data helpers ("scope:action:payload"), HTML escaping and a message builder
// whose defaults are HTML parse mode with link previews off.
package tgui
