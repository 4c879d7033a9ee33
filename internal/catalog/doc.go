// Package catalog defines the channel, video, and comment records shared by
// the fetcher and the viewer, together with the ports each side depends on:
// the video platform source, the relational store, and the optional archive
// and event sinks.
package catalog
