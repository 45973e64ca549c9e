/*
Package silo is an archetype-based Entity-Component-System storage core.

Silo stores entities as dense Structure-of-Arrays columns grouped by
component composition (an archetype) and, within an archetype, by
shared-component value (a chunk group). It supports concurrent allocation,
mutation, and iteration, and serves queries that filter archetypes by
component presence and shared value.

Core Concepts:

  - Entity: a dense integer id resolved through the Entity Index to its
    current (archetype, chunk group, chunk, slot).
  - Component: a registered type with a Kind (instance/shared,
    unmanaged/managed) and a byte layout.
  - Archetype: the set of component types shared by a group of entities,
    partitioned into chunk groups keyed by shared-component value.
  - Chunk: a fixed-capacity SoA block with a lock-free slot allocator.
  - Command Buffer: a per-goroutine byte log of structural mutations,
    applied in sorted batches on a single playback thread.

Basic Usage:

	world := silo.NewWorld(silo.DefaultConfig())

	position := silo.FactoryNewComponent[Position](world)
	velocity := silo.FactoryNewComponent[Velocity](world)

	e, _ := world.CreateEntity(position.TypeID, velocity.TypeID)
	pos := position.GetEntityPtr(world, e)
	pos.X, pos.Y = 10, 20

	q := world.Query().With(position.TypeID, velocity.TypeID)
	q.Execute(func(v silo.View) {
		position.GetPtr(v).X++
	})

Silo is the storage engine underneath a larger game/simulation runtime but
works standalone. Query DSL sugar, a system scheduler, codegen, and wire
serialization are not part of this package.
*/
package silo
