// Package interpreter executes flattened control flow graphs against a
// quantum backend. A State owns the whole execution machine: the stack of
// active graphs, the current value register, per-call operand stacks, and
// the call stack. Eval is re-enterable, which is what the debugger's
// stepping is built on.
package interpreter
