/*
Package types defines the core data structures shared across the BreezeChat
server fabric.

This package contains the domain model used by every service binary:
users, chat session membership, messages, ephemeral verification codes and
session/status entries, plus the in-memory shapes the client-side load
balancer uses to track per-connection load.

# Architecture

The types package is the foundation of the fabric's data model. It defines:

  - Identity (User, credentials, profile fields)
  - Chat session membership (ChatSessionMember)
  - Message envelopes (Message, MessageType, the tagged payload union)
  - Ephemeral auth state (VerificationCode, Session, Status)
  - Load-balancer bookkeeping (ChannelStatus)
  - The RPC envelope shapes exchanged between services (MessageInfo, UserInfo)

All types are designed to be:
  - Serializable (JSON; this fabric does not generate protobuf types, see
    pkg/rpc)
  - Self-documenting (clear field names and comments)
  - Validated at the edges by the owning package (pkg/user, pkg/transmit),
    not by these struct definitions themselves

# Core Types

Identity:
  - User: registered account, nickname/email/password-hash/avatar
  - Session: session_id -> user_id mapping
  - Status: user_id -> online marker, at most one per user

Messaging:
  - ChatSessionMember: (session_id, user_id) membership row
  - Message: persisted message row, one of STRING/IMAGE/FILE/SPEECH
  - MessageInfo: the envelope published to the broker and returned to callers
  - UserInfo: the sender profile embedded in MessageInfo

Load balancing:
  - ChannelStatus: one pooled connection plus its in-flight busy_level
*/
package types
