/*
Package conveyor runs processing pipelines where every stage is executed in
its own goroutine.

Concept

A pipe is an ordered line of stages. Stages are linked with bounded
queues:

    producer -> In -> stage 0 -> queue -> stage 1 -> ... -> Out -> consumer

Every stage polls its input queue with a short timeout, transforms the
item with its processor and pushes the result to the output queue. A
full output queue blocks the stage, so a slow stage throttles the whole
line upstream instead of dropping items.

Stages

Stage logic is defined by a Processor. ProcessFunc transforms a single
item, optional StartFunc and FlushFunc hooks are called when the stage
loop starts and exits. Processor errors are logged and the item is
dropped, the stage keeps running. ErrSkip drops an item without
reporting a fault.

A stage can be disabled at runtime. Disabled stage either passes items
through unchanged or drops them, depending on its DisabledPolicy.

End of stream

The end of stream is signalled in-band with the sentinel message:

    p.In().Push(conveyor.EOS[*frame.Frame]())

Every stage forwards the sentinel and exits, so all items queued before
the sentinel reach the output first.

Live mode

The acquisition source usually streams live images. Pipe pauses the live
streaming while the enable state of any stage changes:

    p := conveyor.New[*frame.Frame](camera)
    p.SetStageEnabled(stage, false)

Lifecycle

    err := p.Wire(stages...)
    err = p.StartAll()
    ...
    p.StopAll()
    err = p.Wait(ctx)

Close sends the sentinel and waits until it passes the whole pipe. Stages
can be inserted and removed only while the pipe is stopped.
*/
package conveyor
