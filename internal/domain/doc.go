// Package domain holds the data model shared by the panel engine, the state
// handler and the storage and remote adapters: document descriptors, the
// catalog, serialized panel records, blobs, the error taxonomy and the ports
// (Store, BlobCache, Remote) the engine is written against.
package domain
