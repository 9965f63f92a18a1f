// Package audio holds the real-time audio framing primitives shared by the
// voice gateway and anything else that speaks to the browser audio worklets.
//
// Two single-owner contexts are modelled:
//
//   - [Framer] runs in the capture context. It turns float microphone blocks
//     into PCM16 frames of about 100 ms.
//   - [Dejitterer] runs in the render context. It plays exactly one queued
//     frame per tick and renders silence on underrun.
//
// Neither blocks on the network. Data crosses context boundaries through a
// bounded [Mailbox] whose senders drop instead of waiting.
package audio
